package orders

type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusPending    Status = "Pending"
	StatusPreparing  Status = "Preparing"
	StatusDelivering Status = "Delivering"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusWaiting:    {StatusPending: true, StatusCancelled: true},
	StatusPending:    {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:  {StatusDelivering: true},
	StatusDelivering: {StatusCompleted: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Paid reports whether money has been captured for the order.
func (s Status) Paid() bool {
	return s == StatusPreparing || s == StatusDelivering || s == StatusCompleted
}

// PaymentStatus is the gateway's view of a payment session.
type PaymentStatus string

const (
	PaymentCreated PaymentStatus = "created"
	PaymentPending PaymentStatus = "pending"
	PaymentSettled PaymentStatus = "settled"
	PaymentExpired PaymentStatus = "expired"
	PaymentDenied  PaymentStatus = "denied"

	// PaymentWindowLapsed is the server-side expiry signal; the gateway never reports it.
	PaymentWindowLapsed PaymentStatus = "window_lapsed"
)

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch p := PaymentStatus(s); p {
	case PaymentCreated, PaymentPending, PaymentSettled, PaymentExpired, PaymentDenied, PaymentWindowLapsed:
		return p, true
	}
	return "", false
}

// cancels reports whether the signal moves a Pending order to Cancelled.
func (p PaymentStatus) cancels() bool {
	return p == PaymentExpired || p == PaymentDenied || p == PaymentWindowLapsed
}
