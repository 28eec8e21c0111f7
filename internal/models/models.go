package models

// Product is the product a try-on session is attached to. It is read from
// the host page once and never changes for the life of the session.
type Product struct {
	ID        string `json:"id"`
	VariantID string `json:"variant_id"`
	Title     string `json:"title"`
	// ImageURL is the product image reference as the host page renders it:
	// absolute, protocol-relative or host-relative.
	ImageURL string `json:"image_url"`
}

// Multipart field names of the try-on submission
const (
	FieldPersonImage  = "personImage"
	FieldProductImage = "productImage"
)

// CodeUsageLimit marks a response refused because the shop ran out of try-ons
const CodeUsageLimit = "USAGE_LIMIT"

// TryOnResponse is the JSON body returned by the try-on endpoint
type TryOnResponse struct {
	ResultImage string `json:"resultImage,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}
