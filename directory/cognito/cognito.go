package cognito

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/google/uuid"
	accounts "github.com/nextonlabs/go-accounts"
)

// Cognito user attribute names
const (
	AttrEmail         = "email"
	AttrEmailVerified = "email_verified"
	AttrPhone         = "phone_number"
	AttrPhoneVerified = "phone_number_verified"
	AttrAccountID     = "custom:id"
)

// DefaultTimeout bounds every call when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Client is the subset of the Cognito API the directory needs.
type Client interface {
	SignUp(ctx context.Context, params *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	AdminCreateUser(ctx context.Context, params *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
}

type Config struct {
	Region      string
	UserPoolID  string
	AppClientID string
	Timeout     time.Duration
	// Policy generates the temporary passwords of invitations.
	Policy accounts.CredentialPolicy
}

// Directory implements accounts.IdentityDirectory on a Cognito user pool.
type Directory struct {
	client Client
	cfg    Config
	logger accounts.Logger
}

var _ accounts.IdentityDirectory = (*Directory)(nil)

type Option func(*Directory)

func WithLogger(logger accounts.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New returns a directory using client.
func New(client Client, cfg Config, opts ...Option) *Directory {
	if client == nil {
		panic("Missing Cognito client in identity directory...")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	d := &Directory{
		client: client,
		cfg:    cfg,
		logger: nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

// NewFromConfig loads the default AWS configuration for cfg.Region and
// returns a directory backed by the Cognito SDK client.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Directory, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return New(cip.NewFromConfig(awsCfg), cfg, opts...), nil
}

func (d *Directory) RegisterByEmail(ctx context.Context, email, password string, accountID uuid.UUID, phone string) (string, error) {
	return d.signUp(ctx, email, password, attributes(
		AttrEmail, email,
		AttrPhone, phone,
		AttrAccountID, accountID.String(),
	))
}

func (d *Directory) RegisterByPhone(ctx context.Context, phone, password string, accountID uuid.UUID, email string) (string, error) {
	return d.signUp(ctx, phone, password, attributes(
		AttrEmail, email,
		AttrPhone, phone,
		AttrAccountID, accountID.String(),
	))
}

func (d *Directory) InviteByEmail(ctx context.Context, accountID uuid.UUID, email string, resend bool, phone string) (string, error) {
	return d.adminCreate(ctx, email, types.DeliveryMediumTypeEmail, resend, attributes(
		AttrEmail, email,
		AttrEmailVerified, "True",
		AttrPhone, phone,
		AttrAccountID, accountID.String(),
	))
}

func (d *Directory) InviteByPhone(ctx context.Context, accountID uuid.UUID, phone string, resend bool, email string) (string, error) {
	return d.adminCreate(ctx, phone, types.DeliveryMediumTypeSms, resend, attributes(
		AttrPhone, phone,
		AttrPhoneVerified, "True",
		AttrEmail, email,
		AttrAccountID, accountID.String(),
	))
}

// Delete removes the identity, a missing identity fails with
// EXTERNAL_ACCOUNT_NOT_FOUND.
func (d *Directory) Delete(ctx context.Context, username string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	_, err := d.client.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(d.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return "", d.mapError("AdminDeleteUser", username, err)
	}

	d.logger.Info("directory identity deleted", "username", username)
	return username, nil
}

// Exists reports whether an identity is registered under username.
func (d *Directory) Exists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	_, err := d.client.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(d.cfg.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		if isUserNotFound(err) {
			return false, nil
		}
		return false, d.mapError("AdminGetUser", username, err)
	}
	return true, nil
}

func (d *Directory) signUp(ctx context.Context, username, password string, attrs []types.AttributeType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	out, err := d.client.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(d.cfg.AppClientID),
		Username:       aws.String(username),
		Password:       aws.String(password),
		UserAttributes: attrs,
	})
	if err != nil {
		return "", d.mapError("SignUp", username, err)
	}

	d.logger.Info("directory signup", "username", username)
	return aws.ToString(out.UserSub), nil
}

func (d *Directory) adminCreate(ctx context.Context, username string, medium types.DeliveryMediumType, resend bool, attrs []types.AttributeType) (string, error) {
	temporary, err := d.cfg.Policy.GenerateTemporaryPassword()
	if err != nil {
		return "", accounts.WrapError(accounts.ErrExternalDirectory, err, map[string]any{
			"operation": "AdminCreateUser",
		})
	}

	input := &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(d.cfg.UserPoolID),
		Username:               aws.String(username),
		TemporaryPassword:      aws.String(temporary),
		DesiredDeliveryMediums: []types.DeliveryMediumType{medium},
		UserAttributes:         attrs,
	}
	if resend {
		input.MessageAction = types.MessageActionTypeResend
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	out, err := d.client.AdminCreateUser(ctx, input)
	if err != nil {
		return "", d.mapError("AdminCreateUser", username, err)
	}

	d.logger.Info("directory invitation sent", "username", username, "medium", medium, "resend", resend)

	if out != nil && out.User != nil {
		return aws.ToString(out.User.Username), nil
	}
	return username, nil
}

func (d *Directory) mapError(operation, username string, err error) error {
	metadata := map[string]any{
		"operation": operation,
		"username":  username,
	}

	if isUserNotFound(err) {
		return accounts.WrapError(accounts.ErrExternalAccountNotFound, err, metadata)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		metadata["timeout"] = d.cfg.Timeout.String()
	}

	d.logger.Error("directory call failed", "operation", operation, "username", username, "error", err)
	return accounts.WrapError(accounts.ErrExternalDirectory, err, metadata)
}

func isUserNotFound(err error) bool {
	var notFound *types.UserNotFoundException
	return errors.As(err, &notFound)
}

// attributes builds user attributes from name/value pairs, empty values are
// left out since Cognito rejects them.
func attributes(pairs ...string) []types.AttributeType {
	attrs := make([]types.AttributeType, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		attrs = append(attrs, types.AttributeType{
			Name:  aws.String(pairs[i]),
			Value: aws.String(pairs[i+1]),
		})
	}
	return attrs
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
