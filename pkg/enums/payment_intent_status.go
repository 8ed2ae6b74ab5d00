package enums

// PaymentIntentStatus mirrors the processor-side lifecycle we persist locally.
type PaymentIntentStatus string

const (
	PaymentIntentStatusCreated   PaymentIntentStatus = "created"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
)

func (s PaymentIntentStatus) String() string {
	return string(s)
}
