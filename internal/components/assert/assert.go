package assert

// NotNil panics when value is nil, it is meant for constructor arguments that
// are programmer errors rather than runtime conditions.
func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}
