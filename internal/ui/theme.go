package ui

// Theme collects the styles used by the bar and the picker.
type Theme struct {
	Bar         Style
	BarDisabled Style
	BarStatus   Style

	Title Style
	Body  Style

	PickerBox    Style
	PickerTitle  Style
	PickerQuery  Style
	PickerItem   Style
	PickerSel    Style
	PickerDetail Style

	// PickerMatch is layered onto the item or selection style at
	// matched character positions.
	PickerMatch AttrMask
}

// DefaultTheme returns the standard color scheme.
func DefaultTheme() Theme {
	bar := DefaultStyle().WithFG(ColorWhite).WithBG(ColorBlue)
	box := DefaultStyle().WithFG(ColorWhite).WithBG(ColorBlack)
	return Theme{
		Bar:         bar.Bold(),
		BarDisabled: bar.Dim(),
		BarStatus:   bar,

		Title: DefaultStyle().Reverse(),
		Body:  DefaultStyle(),

		PickerBox:    box,
		PickerTitle:  box.Bold(),
		PickerQuery:  box,
		PickerItem:   box,
		PickerSel:    box.Reverse(),
		PickerDetail: box.Dim(),
		PickerMatch:  AttrBold | AttrUnderline,
	}
}
