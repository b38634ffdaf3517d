package ui

// Key binding constants used in handleKey.
const (
	KeyStart     = "r"
	KeyStop      = "s"
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
)
