package errors

var (
	// Domain errors — used in usecase/repository
	ErrMessageNotFound       = NotFound("message not found")
	ErrNotFriends            = Forbidden("users are not friends")
	ErrForeignSender         = Forbidden("sender does not belong to this server")
	ErrFederationUnavailable = FailedPrecondition("federation is not configured on this server")
	ErrClientMessageIDReused = AlreadyExists("client message id already used for a different sender/recipient pair")
	ErrInvalidContentType    = InvalidArg("content type must be plain-text or opaque-ciphertext")
	ErrInvalidContent        = InvalidArg("content must be 1-8000 characters")
	ErrInvalidAddress        = InvalidArg("user address must be localId or localId@server")

	// Actor identity errors
	ErrIdentityUnconfigured = Internal("actor identity secret is not configured")
	ErrMalformedToken       = Unauthorized("malformed actor token")
	ErrBadTokenSignature    = Unauthorized("actor token signature mismatch")
	ErrBadTokenPayload      = Unauthorized("actor token payload invalid")
	ErrActorMismatch        = Forbidden("token identity does not match supplied user id")
	ErrLegacyIdentityDenied = Unauthorized("unauthenticated user id assertion is no longer accepted")
	ErrIdentityRequired     = InvalidArg("an actor token or user id is required")

	// Federation errors
	ErrMissingFederationHeaders = Unauthorized("missing federation headers")
	ErrTimestampSkew            = Unauthorized("federation timestamp outside accepted window")
	ErrUnknownPeer              = Unauthorized("no shared secret configured for sender server")
	ErrBadDeliverySignature     = Unauthorized("federation signature mismatch")
	ErrWrongDestination         = Forbidden("delivery is not addressed to this server")
	ErrSenderServerMismatch     = Forbidden("sender address does not match authenticated server")
	ErrBadDispatchKey           = Unauthorized("invalid dispatch key")
)

func ErrDeliveryValidation(msg string) error {
	return New(CodeInvalidArgument, msg)
}
