package appointments

import "fmt"

// DefaultPlatformFeePercent applies when no percentage is configured.
const DefaultPlatformFeePercent = 10

// typeDeltas adjust the doctor's base fee per consultation type, in rupees.
var typeDeltas = map[ConsultationType]int64{
	TypeVideo: 0,
	TypeVoice: -100,
}

// Quote is the price breakdown shown before and stored at booking.
type Quote struct {
	ConsultationFees int64 `json:"consultationFees"`
	PlatformFees     int64 `json:"platformFees"`
	TotalAmount      int64 `json:"totalAmount"`
}

// Price computes the quote for a base fee. The platform fee is rounded half up.
func Price(baseFees int64, kind ConsultationType, feePercent int) (Quote, error) {
	delta, ok := typeDeltas[kind]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidType, kind)
	}
	if feePercent < 0 {
		feePercent = 0
	}
	fees := baseFees + delta
	if fees < 0 {
		fees = 0
	}
	platform := (fees*int64(feePercent) + 50) / 100
	return Quote{ConsultationFees: fees, PlatformFees: platform, TotalAmount: fees + platform}, nil
}
