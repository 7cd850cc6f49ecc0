package domain

import "time"

// PostStatus mirrors the publication state of a stored post.
type PostStatus string

const (
	PostStatusDraft   PostStatus = "draft"
	PostStatusPublish PostStatus = "publish"
)

// Taxonomies used when assigning terms.
const (
	TaxonomyCategory = "category"
	TaxonomyTag      = "post_tag"
)

// Post is a stored article.
type Post struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Excerpt   string     `json:"excerpt"`
	Status    PostStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PostDraft holds the fields needed to create a post.
type PostDraft struct {
	Title   string
	Content string
	Excerpt string
	Status  PostStatus
}

// PostUpdate carries a partial post update. Nil fields are left unchanged.
type PostUpdate struct {
	Title   *string
	Content *string
	Excerpt *string
	Status  *PostStatus
}

// MediaFile is a verified image ready for storage.
type MediaFile struct {
	Name string
	MIME string
	Data []byte
}
