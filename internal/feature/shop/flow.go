// Package shop drives the /shop conversation: registration check, the email
// round trip, and delivery of personalized merchant links.
package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"affiliate_shop_bot/internal/domain"
	"affiliate_shop_bot/internal/logging"
	"affiliate_shop_bot/internal/session"
)

// Replies sent to users.
const (
	MsgWelcome         = "Welcome! Send /shop <MerchantName> to get your personal shop link."
	MsgWelcomeBack     = "Welcome back! Send /shop <MerchantName> to get your personal shop link."
	MsgMalformedShop   = "Invalid command format. Use /shop <MerchantName>"
	MsgRequestEmail    = "Please provide your registered email address:"
	MsgInvalidEmail    = "Invalid email address. Please try again."
	MsgTooManyAttempts = "Too many invalid attempts. Send /shop <MerchantName> to try again."
	MsgRegistered      = "Registration successful."
	MsgRegisterFailed  = "Registration failed. Please send your email again."
	MsgCheckFailed     = "Unable to check your registration right now. Please try again later."
	MsgMerchantMissing = "Merchant not found."
	MsgShopLink        = "Click the button below to shop:"
	MsgLinkError       = "Error generating affiliate link: %s"

	LabelShopLink = "Your Unique Shop Link"
	LabelRegister = "Register"
)

// Callback payloads carried by inline keyboard buttons.
const (
	CallbackRequestEmail        = "request_email"
	CallbackAffiliateLinkPrefix = "affiliate_link_"
)

const (
	DefaultMaxEmailAttempts = 5
	DefaultStoreTimeout     = 5 * time.Second

	linkErrorFallback = "please try again later"
)

// ProfileLookup answers registration questions against the identity store.
type ProfileLookup interface {
	Exists(ctx context.Context, userID int64) (bool, error)
	FindAffiliateIDByEmail(ctx context.Context, email string) (string, error)
}

// Registrar persists the binding between a Telegram user and an affiliate id.
type Registrar interface {
	Register(ctx context.Context, userID int64, email, affiliateUserID string) (bool, error)
}

// Catalog resolves merchant names to link specs.
type Catalog interface {
	GetByMerchant(ctx context.Context, merchant string) (domain.AffiliateLinkSpec, error)
}

// LinkGenerator builds the tracking link for a registered user.
type LinkGenerator interface {
	Generate(ctx context.Context, userID int64, spec domain.AffiliateLinkSpec) (string, error)
}

// Messenger delivers replies to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendURLButton(ctx context.Context, chatID int64, text, label, url string) error
	SendCallbackButton(ctx context.Context, chatID int64, text, label, data string) error
}

// Deps groups the collaborators a Flow needs.
type Deps struct {
	Sessions  session.Store
	Profiles  ProfileLookup
	Registrar Registrar
	Catalog   Catalog
	Generator LinkGenerator
	Messenger Messenger
}

// Option customizes a Flow.
type Option func(*Flow)

// WithMaxEmailAttempts bounds consecutive invalid email replies. Zero keeps
// re-prompting forever.
func WithMaxEmailAttempts(n int) Option {
	return func(f *Flow) {
		if n >= 0 {
			f.maxEmailAttempts = n
		}
	}
}

// WithStoreTimeout bounds each identity store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.storeTimeout = d
		}
	}
}

// Flow handles inbound chat events for the shop conversation. Sessions of
// different users are independent; events for the same user are not
// serialized and the last session write wins.
type Flow struct {
	deps             Deps
	logger           *logrus.Entry
	maxEmailAttempts int
	storeTimeout     time.Duration
}

// NewFlow validates deps and constructs a Flow.
func NewFlow(deps Deps, logger *logrus.Entry, opts ...Option) (*Flow, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("session store is required")
	case deps.Profiles == nil:
		return nil, errors.New("profile lookup is required")
	case deps.Registrar == nil:
		return nil, errors.New("registrar is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog is required")
	case deps.Generator == nil:
		return nil, errors.New("link generator is required")
	case deps.Messenger == nil:
		return nil, errors.New("messenger is required")
	}

	if logger == nil {
		logger = logging.Logger()
	}

	f := &Flow{
		deps:             deps,
		logger:           logger,
		maxEmailAttempts: DefaultMaxEmailAttempts,
		storeTimeout:     DefaultStoreTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f, nil
}

// ParseShopArgs extracts the merchant from /shop arguments. Anything other
// than exactly one argument is a malformed request.
func ParseShopArgs(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", domain.ErrMalformedRequest
	}
	return strings.TrimSpace(args[0]), nil
}

// HandleStart resets the user's session and greets them. Unregistered users
// also get a button that starts the email round trip.
func (f *Flow) HandleStart(ctx context.Context, userID, chatID int64) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	if err := f.saveSession(ctx, session.New(userID)); err != nil {
		return err
	}

	registered, err := f.IsRegistered(ctx, userID)
	if err != nil {
		f.log(ctx).WithFields(logging.Fields{
			"event":   "registration_check_failed",
			"user_id": userID,
		}).WithError(err).Warn("failed to check registration on start")
	}

	if registered {
		return f.deps.Messenger.SendText(ctx, chatID, MsgWelcomeBack)
	}

	return f.deps.Messenger.SendCallbackButton(ctx, chatID, MsgWelcome, LabelRegister, CallbackRequestEmail)
}

// HandleShop is the /shop <Merchant> entry point. Registered users get their
// link right away; everyone else is asked for their email first and the
// merchant is remembered until registration completes.
func (f *Flow) HandleShop(ctx context.Context, userID, chatID int64, args []string) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	merchant, err := ParseShopArgs(args)
	if err != nil {
		f.log(ctx).WithFields(logging.Fields{
			"event":   "shop_malformed",
			"kind":    domain.KindOf(err).String(),
			"user_id": userID,
		}).Debug("rejected malformed shop command")
		return f.deps.Messenger.SendText(ctx, chatID, MsgMalformedShop)
	}

	sess, err := f.loadSession(ctx, userID)
	if err != nil {
		return err
	}

	sess.State = session.StateCommandReceived
	sess.PendingMerchant = merchant
	if err := f.saveSession(ctx, sess); err != nil {
		return err
	}

	registered, err := f.IsRegistered(ctx, userID)
	if err != nil {
		f.log(ctx).WithFields(logging.Fields{
			"event":    "registration_check_failed",
			"user_id":  userID,
			"merchant": merchant,
		}).WithError(err).Warn("failed to check registration")
		return f.deps.Messenger.SendText(ctx, chatID, MsgCheckFailed)
	}

	if registered {
		sess.State = session.StateRegistered
		sess.AwaitingEmail = false
		sess.PendingMerchant = ""
		sess.EmailAttempts = 0
		if err := f.saveSession(ctx, sess); err != nil {
			return err
		}
		return f.SendLink(ctx, userID, chatID, merchant)
	}

	sess.State = session.StateNotRegistered
	return f.requestEmail(ctx, sess, chatID)
}

// IsRegistered reports whether a profile exists for userID.
func (f *Flow) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	if err := f.validate(ctx, userID); err != nil {
		return false, err
	}

	storeCtx, cancel := f.storeContext(ctx)
	defer cancel()

	registered, err := f.deps.Profiles.Exists(storeCtx, userID)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}

	return registered, nil
}

// RequestEmail prompts for the user's registered email and routes their next
// free-text message to HandleEmailReply.
func (f *Flow) RequestEmail(ctx context.Context, userID, chatID int64) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	sess, err := f.loadSession(ctx, userID)
	if err != nil {
		return err
	}

	if sess.State != session.StateRegistered {
		sess.State = session.StateNotRegistered
	}

	return f.requestEmail(ctx, sess, chatID)
}

func (f *Flow) requestEmail(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.AwaitingEmail = true
	if err := f.saveSession(ctx, sess); err != nil {
		return err
	}

	return f.deps.Messenger.SendText(ctx, chatID, MsgRequestEmail)
}

// HandleText routes free text. It reports false when the user has no pending
// prompt and the message was left alone.
func (f *Flow) HandleText(ctx context.Context, userID, chatID int64, text string) (bool, error) {
	if err := f.validate(ctx, userID); err != nil {
		return false, err
	}

	sess, err := f.deps.Sessions.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || !sess.AwaitingEmail {
		return false, nil
	}

	return true, f.handleEmailReply(ctx, sess, chatID, text)
}

// HandleEmailReply resolves the email to an affiliate account and registers
// the user, or re-prompts. Unknown emails and lookup failures get the same
// reply.
func (f *Flow) HandleEmailReply(ctx context.Context, userID, chatID int64, rawText string) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	sess, err := f.loadSession(ctx, userID)
	if err != nil {
		return err
	}

	return f.handleEmailReply(ctx, sess, chatID, rawText)
}

func (f *Flow) handleEmailReply(ctx context.Context, sess *session.Session, chatID int64, rawText string) error {
	email := strings.TrimSpace(rawText)

	storeCtx, cancel := f.storeContext(ctx)
	affiliateUserID, err := f.deps.Profiles.FindAffiliateIDByEmail(storeCtx, email)
	cancel()

	if err != nil {
		if domain.KindOf(err) != domain.KindEmailNotFound {
			f.log(ctx).WithFields(logging.Fields{
				"event":   "email_lookup_failed",
				"user_id": sess.UserID,
			}).WithError(err).Warn("email lookup failed")
		}
		return f.rejectEmail(ctx, sess, chatID)
	}

	if err := f.RegisterUser(ctx, sess.UserID, email, affiliateUserID); err != nil {
		f.log(ctx).WithFields(logging.Fields{
			"event":   "registration_failed",
			"user_id": sess.UserID,
		}).WithError(err).Error("failed to store registration")
		return f.deps.Messenger.SendText(ctx, chatID, MsgRegisterFailed)
	}

	merchant := sess.PendingMerchant
	sess.State = session.StateRegistered
	sess.AwaitingEmail = false
	sess.PendingMerchant = ""
	sess.EmailAttempts = 0
	if err := f.saveSession(ctx, sess); err != nil {
		return err
	}

	if err := f.deps.Messenger.SendText(ctx, chatID, MsgRegistered); err != nil {
		return err
	}

	if merchant == "" {
		return nil
	}

	return f.SendLink(ctx, sess.UserID, chatID, merchant)
}

func (f *Flow) rejectEmail(ctx context.Context, sess *session.Session, chatID int64) error {
	sess.EmailAttempts++
	if sess.State != session.StateRegistered {
		sess.State = session.StateNotRegistered
	}

	if f.maxEmailAttempts > 0 && sess.EmailAttempts >= f.maxEmailAttempts {
		f.log(ctx).WithFields(logging.Fields{
			"event":    "email_attempts_exhausted",
			"user_id":  sess.UserID,
			"attempts": sess.EmailAttempts,
		}).Info("disarmed email prompt after repeated invalid replies")

		sess.AwaitingEmail = false
		sess.EmailAttempts = 0
		if err := f.saveSession(ctx, sess); err != nil {
			return err
		}
		return f.deps.Messenger.SendText(ctx, chatID, MsgTooManyAttempts)
	}

	if err := f.deps.Messenger.SendText(ctx, chatID, MsgInvalidEmail); err != nil {
		return err
	}

	return f.requestEmail(ctx, sess, chatID)
}

// RegisterUser upserts the profile for userID. Repeating the call with the
// same arguments leaves the stored profile unchanged.
func (f *Flow) RegisterUser(ctx context.Context, userID int64, email, affiliateUserID string) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	storeCtx, cancel := f.storeContext(ctx)
	defer cancel()

	if _, err := f.deps.Registrar.Register(storeCtx, userID, email, affiliateUserID); err != nil {
		return fmt.Errorf("register user: %w", err)
	}

	return nil
}

// SendLink looks the merchant up in the catalog and sends the user's tracking
// link as a URL button. Lookup and generation failures become chat replies.
func (f *Flow) SendLink(ctx context.Context, userID, chatID int64, merchant string) error {
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	storeCtx, cancel := f.storeContext(ctx)
	defer cancel()

	spec, err := f.deps.Catalog.GetByMerchant(storeCtx, merchant)
	if err != nil {
		if errors.Is(err, domain.ErrMerchantNotFound) {
			f.log(ctx).WithFields(logging.Fields{
				"event":    "merchant_not_found",
				"user_id":  userID,
				"merchant": merchant,
			}).Info("merchant missing from catalog")
			return f.deps.Messenger.SendText(ctx, chatID, MsgMerchantMissing)
		}

		f.log(ctx).WithFields(logging.Fields{
			"event":    "catalog_lookup_failed",
			"user_id":  userID,
			"merchant": merchant,
		}).WithError(err).Warn("merchant lookup failed")
		return f.deps.Messenger.SendText(ctx, chatID, fmt.Sprintf(MsgLinkError, linkErrorFallback))
	}

	link, err := f.deps.Generator.Generate(storeCtx, userID, spec)
	if err != nil {
		f.log(ctx).WithFields(logging.Fields{
			"event":    "link_generation_failed",
			"kind":     domain.KindOf(err).String(),
			"user_id":  userID,
			"merchant": merchant,
		}).WithError(err).Warn("failed to generate tracking link")
		return f.deps.Messenger.SendText(ctx, chatID, fmt.Sprintf(MsgLinkError, domain.Message(err, linkErrorFallback)))
	}

	if err := f.deps.Messenger.SendURLButton(ctx, chatID, MsgShopLink, LabelShopLink, link); err != nil {
		return err
	}

	f.log(ctx).WithFields(logging.Fields{
		"event":    "link_sent",
		"user_id":  userID,
		"merchant": merchant,
		"platform": string(spec.SourcePlatform),
	}).Info("sent tracking link")

	return nil
}

// HandleCallback dispatches inline keyboard payloads. Unknown payloads are
// ignored.
func (f *Flow) HandleCallback(ctx context.Context, userID, chatID int64, data string) error {
	switch {
	case data == CallbackRequestEmail:
		return f.RequestEmail(ctx, userID, chatID)
	case strings.HasPrefix(data, CallbackAffiliateLinkPrefix):
		merchant := strings.TrimPrefix(data, CallbackAffiliateLinkPrefix)
		if strings.TrimSpace(merchant) == "" {
			return nil
		}
		return f.SendLink(ctx, userID, chatID, merchant)
	default:
		f.log(ctx).WithFields(logging.Fields{
			"event":   "callback_ignored",
			"user_id": userID,
			"data":    data,
		}).Debug("ignored unknown callback payload")
		return nil
	}
}

// HandleInline treats a single-word inline query as a merchant name and runs
// the /shop flow in the user's private chat. Queries that are not exactly one
// word, or that name no catalog merchant, are ignored without a reply, so
// typing prefixes such as "Sho" stays silent.
func (f *Flow) HandleInline(ctx context.Context, userID int64, query string) error {
	args := strings.Fields(query)
	if len(args) != 1 {
		return nil
	}
	if err := f.validate(ctx, userID); err != nil {
		return err
	}

	storeCtx, cancel := f.storeContext(ctx)
	_, err := f.deps.Catalog.GetByMerchant(storeCtx, args[0])
	cancel()
	if err != nil {
		entry := f.log(ctx).WithFields(logging.Fields{
			"event":    "inline_ignored",
			"user_id":  userID,
			"merchant": args[0],
		})
		if errors.Is(err, domain.ErrMerchantNotFound) {
			entry.Debug("inline query names no catalog merchant")
		} else {
			entry.WithError(err).Warn("inline merchant lookup failed")
		}
		return nil
	}

	return f.HandleShop(ctx, userID, userID, args)
}

func (f *Flow) validate(ctx context.Context, userID int64) error {
	if f == nil || f.deps.Sessions == nil || f.deps.Messenger == nil {
		return errors.New("shop flow is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user id is required")
	}
	return nil
}

func (f *Flow) loadSession(ctx context.Context, userID int64) (*session.Session, error) {
	sess, err := f.deps.Sessions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = session.New(userID)
	}
	return sess, nil
}

func (f *Flow) saveSession(ctx context.Context, sess *session.Session) error {
	if err := f.deps.Sessions.Set(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (f *Flow) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.storeTimeout)
}

func (f *Flow) log(ctx context.Context) *logrus.Entry {
	return logging.FromContext(ctx, f.logger)
}
