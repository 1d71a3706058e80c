package callback

// RegisterBuiltins installs the builtin plugins into a registry.
func RegisterBuiltins(r *Registry) error {
	for _, reg := range []Registration{
		{Caps: DefaultStdoutCaps, New: NewDefaultStdout},
		{Caps: TimerCaps, New: NewTimer},
		{Caps: JSONLCaps, New: NewJSONL},
	} {
		if err := r.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
