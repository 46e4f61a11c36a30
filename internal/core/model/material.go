package model

const (
	MaterialAvailable = "available"
	MaterialRequested = "requested"
)

type WasteMaterial struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ToxicityLevel string   `json:"toxicity_level,omitempty"`
	BaseElement   string   `json:"base_element,omitempty"`
	Category      string   `json:"category,omitempty"`
	Description   string   `json:"description,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	Quantity      *float64 `json:"quantity,omitempty"`
	Status        string   `json:"status,omitempty"`
}

type Regulation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description,omitempty"`
}

// MaterialLink is one PRODUCES or CAN_UPCYCLE edge as seen by the profile extractor.
type MaterialLink struct {
	CompanyID    string
	MaterialID   string
	MaterialName string
}

// MaterialHit is a search result over waste materials.
type MaterialHit struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status,omitempty"`
	Score       float64 `json:"score"`
}
