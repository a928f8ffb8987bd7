package assets

import _ "embed"

// SystemInstruction is the default instruction sent with every model request.
//
//go:embed system_instruction.md
var SystemInstruction string
