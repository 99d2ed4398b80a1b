package main

// Key bindings handled by panelModel.Update.
const (
	KeyStart     = "f1"
	KeyStop      = "f2"
	KeyFormat    = "f3"
	KeyPunctuate = "f4"
	KeyCopy      = "f5"
	KeyLanguage  = "f6"
	KeyLevel     = "f7"
	KeyToggle    = "ctrl+r"
	KeyClear     = "ctrl+l"
	KeyQuit      = "ctrl+c"
	KeyQuitEsc   = "esc"
	KeyBackspace = "backspace"
	KeyEnter     = "enter"
	KeyConfirm   = "y"
	KeyConfirmUp = "Y"
)
