package usecase

// RequestMeta carries the caller attributes recorded alongside session and
// activity writes.
type RequestMeta struct {
	SourceAddr string
	UserAgent  string
}
