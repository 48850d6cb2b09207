package domain

// Category is the coarse counterparty class assigned by the classifier.
type Category string

const (
	CategoryExchangeCold Category = "exchange_cold"
	CategoryContract     Category = "contract"
	CategoryPrivate      Category = "private"
	CategoryUnknown      Category = "unknown"
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryExchangeCold, CategoryContract, CategoryPrivate, CategoryUnknown:
		return true
	}
	return false
}

// ConfidenceFloor is the minimum confidence for a non-unknown category.
// Classifications below the floor are reported as unknown but remain alertable.
const ConfidenceFloor = 0.5

// Classification is the classifier's verdict for a single address.
type Classification struct {
	Address     string   `json:"address"`
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"` // in [0, 1]
	KnownEntity string   `json:"known_entity,omitempty"`
}

// ClassifiedMovement is a movement enriched with the counterparty verdict.
type ClassifiedMovement struct {
	Movement
	Classification Classification `json:"classification"`
}
