package logger

// RedactName masks a Telegram username or display name for safe logging.
// "marialovesfood" → "ma***". Short names (≤2 chars) are fully masked.
func RedactName(name string) string {
	if len(name) > 2 {
		return name[:2] + "***"
	}
	return "***"
}
