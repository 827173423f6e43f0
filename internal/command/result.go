package command

// Result is the structured outcome every handler returns. The dispatcher is
// its only consumer; it decides from the four independent channels what to
// log, reply, escalate, and whether to append help text.
//
// Code zero means success; any other value is handler-defined. An empty
// string leaves that channel unset.
type Result struct {
	// Code is the status code; 0 is success.
	Code int
	// Log is written to the backend log (error level when Code != 0,
	// info level otherwise).
	Log string
	// Reply is sent verbatim to the originating chat.
	Reply string
	// Report is escalated to the operator channel when one is configured,
	// and silently dropped otherwise.
	Report string
	// NeedHelp requests the resolved command's help text as a second reply.
	NeedHelp bool
}

// OK returns a success Result with no output channels set.
func OK() Result {
	return Result{}
}
