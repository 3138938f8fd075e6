package telegram

// Channel holds resolved telegram channel identity.
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
}

// Options configures a client handle.
type Options struct {
	APIID   int
	APIHash string

	// SessionString is a previously exported credential.
	// Empty means a fresh unauthenticated handle for the auth flow.
	SessionString string

	// RPS overrides the default request rate, 0 keeps the default.
	RPS float64
}
