package ui

// ColorReset returns the escape code that clears all formatting.
func ColorReset() string { return GetCurrentTheme().Reset }

// ColorRed returns the error color of the current theme.
func ColorRed() string { return GetCurrentTheme().Error }

// ColorGreen returns the success color of the current theme.
func ColorGreen() string { return GetCurrentTheme().Success }

// ColorYellow returns the warning color of the current theme.
func ColorYellow() string { return GetCurrentTheme().Warning }

// ColorBlue returns the primary color of the current theme.
func ColorBlue() string { return GetCurrentTheme().Primary }

// ColorMagenta returns the info color of the current theme.
func ColorMagenta() string { return GetCurrentTheme().Info }

// ColorCyan returns the secondary accent used for values.
func ColorCyan() string { return GetCurrentTheme().Primary }

// ColorGrey returns the secondary color of the current theme.
func ColorGrey() string { return GetCurrentTheme().Secondary }

func ColorBold() string      { return GetCurrentTheme().Bold }
func ColorUnderline() string { return GetCurrentTheme().Underline }
