package tempadmin

// metrics, for tests
var (
	GrantsCreated            = grantsCreated
	GrantsRevoked            = grantsRevoked
	Validations              = validations
	AuditWriteFailures       = auditWriteFailures
	IdentityDisableFailures  = identityDisableFailures
	IdentityRollbackFailures = identityRollbackFailures
)
