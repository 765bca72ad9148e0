package datastore

import (
	"errors"
	"time"
)

// ErrNoData is returned when the price table is missing, unreadable or has no
// usable rows for the requested selection.
var ErrNoData = errors.New("no price data")

// DateLayout is the on-disk and API date format.
const DateLayout = "2006-01-02"

// Crop is one of the fixed set of commodities the service prices.
type Crop string

const (
	Coconut  Crop = "Coconut"
	Arecanut Crop = "Arecanut"
	Pepper   Crop = "Pepper"
)

// Crops lists the supported crops.
var Crops = []Crop{Coconut, Arecanut, Pepper}

// BasePrices are the reference prices in ₹ per quintal used when seeding data.
var BasePrices = map[Crop]float64{
	Coconut:  8000,
	Arecanut: 35000,
	Pepper:   45000,
}

// Districts is the closed set of Karnataka districts.
var Districts = []string{
	"Bagalkot", "Ballari", "Belagavi", "Bengaluru Rural", "Bengaluru Urban",
	"Bidar", "Chamarajanagar", "Chikkaballapur", "Chikkamagaluru", "Chitradurga",
	"Dakshina Kannada", "Davanagere", "Dharwad", "Gadag", "Hassan", "Haveri",
	"Kalaburagi", "Kodagu", "Kolar", "Koppal", "Mandya", "Mysuru", "Raichur",
	"Ramanagara", "Shivamogga", "Tumakuru", "Udupi", "Uttara Kannada", "Vijayapura", "Yadgir",
}

var (
	cropSet     = make(map[string]struct{}, len(Crops))
	districtSet = make(map[string]struct{}, len(Districts))
)

func init() {
	for _, c := range Crops {
		cropSet[string(c)] = struct{}{}
	}
	for _, d := range Districts {
		districtSet[d] = struct{}{}
	}
}

// IsValidCrop reports whether name is one of Crops.
func IsValidCrop(name string) bool {
	_, ok := cropSet[name]
	return ok
}

// IsValidDistrict reports whether name is one of Districts.
func IsValidDistrict(name string) bool {
	_, ok := districtSet[name]
	return ok
}

// PriceRecord is a single observed price. Records are immutable once written.
type PriceRecord struct {
	Date     time.Time
	Crop     string
	District string
	Price    float64 // ₹ per quintal
}

// PricePoint is one entry of a historical price series.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// DateOf truncates t to its calendar date, expressed as midnight UTC so that
// dates compare equal regardless of the zone they were derived in.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
