package log

const (
	defaultLevel      = "info"
	defaultEncoding   = "console"
	defaultOutputPath = "stdout"
)
