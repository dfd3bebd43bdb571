package models

// UploadSlot is a short-lived grant for the client to upload one object
// directly to the object store. It is never persisted.
type UploadSlot struct {
	// UploadURL is the presigned target.
	UploadURL string
	// Method is "POST" (form upload, Fields must be sent) or "PUT".
	Method string
	// Fields are the form fields of a presigned POST.
	Fields map[string]string
	// ObjectKey is the key the object will be stored under.
	ObjectKey string
	// PublicURL is where the object can be read once uploaded, if public.
	PublicURL string
	// ContentType the upload must carry.
	ContentType string
	// ExpiresIn is the validity of the grant, in seconds.
	ExpiresIn int
}

// DownloadSlot is a short-lived presigned GET for a stored object.
type DownloadSlot struct {
	DownloadURL string
	ObjectKey   string
	ExpiresIn   int
}
