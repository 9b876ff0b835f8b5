package deposit

var localCreatedAtLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

const (
	// DefaultKeyPrefix scopes deposit records in the storage namespace.
	DefaultKeyPrefix = "coffee:"

	// ExpiringSoonDays is the inclusive window in which a record counts as expiring soon.
	ExpiringSoonDays = 7

	// Operation log statuses.
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"

	expiryDateLayout  = "2006-01-02"
	displayDateLayout = "2006/01/02"
	createdAtLayout   = "2006-01-02T15:04:05.000Z07:00"

	createdAtMicroLayout = "2006-01-02T15:04:05.000000Z07:00"
	createdAtNanoLayout  = "2006-01-02T15:04:05.000000000Z07:00"

	operationLoad   = "load"
	operationCreate = "create"
	operationRedeem = "redeem"
	operationDelete = "delete"

	errorOperationDeposit = "deposit"
	errorSubjectStorage   = "storage"
	errorSubjectRecord    = "record"
	errorCodeList         = "list"
	errorCodeGet          = "get"
	errorCodeSet          = "set"
	errorCodeDelete       = "delete"
	errorCodeMissing      = "missing"
	errorCodeDecode       = "decode"
	errorCodeKeyMismatch  = "key_mismatch"
	errorCodeEncode       = "encode"
)
