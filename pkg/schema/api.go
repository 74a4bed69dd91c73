package schema

// Dimensions is an intrinsic pixel size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ArtifactDescriptor is returned by upload and resize-and-convert.
type ArtifactDescriptor struct {
	ID                string     `json:"id"`
	Owner             *string    `json:"owner"`
	RevocationToken   string     `json:"revocationToken"`
	ImageSourceFormat string     `json:"imageSourceFormat"`
	ImageDimensions   Dimensions `json:"imageDimensions"`
}

type DeriveRequest struct {
	UUID         string `json:"uuid"`
	TargetFormat string `json:"targetFormat"`
	TargetWidth  *int   `json:"targetWidth,omitempty"`
}

type DeleteRequest struct {
	UUID string `json:"uuid"`
}

type DeleteResponse struct {
	Success bool `json:"success"`
}

// ListedImage is one entry of a list page. CreatedAt is epoch milliseconds.
type ListedImage struct {
	ID                string     `json:"id"`
	OwnerUUID         *string    `json:"ownerUUID"`
	OriginalOwnerUUID *string    `json:"originalOwnerUUID"`
	CreatedAt         int64      `json:"createdAt"`
	SourceFormat      string     `json:"sourceFormat"`
	SourceDimensions  Dimensions `json:"sourceDimensions"`
}

type ListResponse struct {
	Images     []ListedImage `json:"images"`
	NextCursor *string       `json:"nextCursor"`
}

// KeyRequest addresses an access key by uuid or by secret, never both.
type KeyRequest struct {
	UUID           string `json:"uuid,omitempty"`
	Key            string `json:"key,omitempty"`
	ContentRemoval bool   `json:"content_removal,omitempty"`
}

type KeyResponse struct {
	UUID      string `json:"uuid"`
	Key       string `json:"key"`
	CreatedAt int64  `json:"createdAt"`
}

type KeyRevokedResponse struct {
	UUID             string `json:"uuid"`
	ContentRemoval   bool   `json:"content_removal"`
	RemovedArtifacts int    `json:"removedArtifacts"`
}
