package cognito

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/google/uuid"
	accounts "github.com/nextonlabs/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	signUp      []*cip.SignUpInput
	adminCreate []*cip.AdminCreateUserInput
	adminDelete []*cip.AdminDeleteUserInput
	adminGet    []*cip.AdminGetUserInput
	err         error
	deadline    bool
}

func (f *fakeClient) SignUp(ctx context.Context, params *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	_, f.deadline = ctx.Deadline()
	f.signUp = append(f.signUp, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cip.SignUpOutput{UserSub: aws.String("sub-123")}, nil
}

func (f *fakeClient) AdminCreateUser(ctx context.Context, params *cip.AdminCreateUserInput, _ ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error) {
	_, f.deadline = ctx.Deadline()
	f.adminCreate = append(f.adminCreate, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cip.AdminCreateUserOutput{User: &types.UserType{Username: params.Username}}, nil
}

func (f *fakeClient) AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, _ ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error) {
	_, f.deadline = ctx.Deadline()
	f.adminDelete = append(f.adminDelete, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cip.AdminDeleteUserOutput{}, nil
}

func (f *fakeClient) AdminGetUser(ctx context.Context, params *cip.AdminGetUserInput, _ ...func(*cip.Options)) (*cip.AdminGetUserOutput, error) {
	_, f.deadline = ctx.Deadline()
	f.adminGet = append(f.adminGet, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cip.AdminGetUserOutput{Username: params.Username}, nil
}

func newTestDirectory(client *fakeClient) *Directory {
	return New(client, Config{
		Region:      "us-east-1",
		UserPoolID:  "us-east-1_pool",
		AppClientID: "client-id",
		Policy:      accounts.NewCredentialPolicy(12),
	})
}

func attrMap(attrs []types.AttributeType) map[string]string {
	out := map[string]string{}
	for _, a := range attrs {
		out[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return out
}

func TestRegisterByEmail(t *testing.T) {
	client := &fakeClient{}
	dir := newTestDirectory(client)
	id := uuid.New()

	sub, err := dir.RegisterByEmail(context.Background(), "a@b.com", "Abc12345!!", id, "")
	require.NoError(t, err)
	assert.Equal(t, "sub-123", sub)
	assert.True(t, client.deadline)

	require.Len(t, client.signUp, 1)
	in := client.signUp[0]
	assert.Equal(t, "client-id", aws.ToString(in.ClientId))
	assert.Equal(t, "a@b.com", aws.ToString(in.Username))
	assert.Equal(t, "Abc12345!!", aws.ToString(in.Password))
	assert.Equal(t, map[string]string{
		AttrEmail:     "a@b.com",
		AttrAccountID: id.String(),
	}, attrMap(in.UserAttributes))
}

func TestRegisterByPhone(t *testing.T) {
	client := &fakeClient{}
	dir := newTestDirectory(client)
	id := uuid.New()

	_, err := dir.RegisterByPhone(context.Background(), "+543416412222", "Abc12345!!", id, "a@b.com")
	require.NoError(t, err)

	in := client.signUp[0]
	assert.Equal(t, "+543416412222", aws.ToString(in.Username))
	assert.Equal(t, map[string]string{
		AttrEmail:     "a@b.com",
		AttrPhone:     "+543416412222",
		AttrAccountID: id.String(),
	}, attrMap(in.UserAttributes))
}

func TestInviteByEmail(t *testing.T) {
	client := &fakeClient{}
	dir := newTestDirectory(client)
	id := uuid.New()

	username, err := dir.InviteByEmail(context.Background(), id, "c@d.com", false, "")
	require.NoError(t, err)
	assert.Equal(t, "c@d.com", username)

	require.Len(t, client.adminCreate, 1)
	in := client.adminCreate[0]
	assert.Equal(t, "us-east-1_pool", aws.ToString(in.UserPoolId))
	assert.Equal(t, []types.DeliveryMediumType{types.DeliveryMediumTypeEmail}, in.DesiredDeliveryMediums)
	assert.Empty(t, in.MessageAction)
	assert.Equal(t, map[string]string{
		AttrEmail:         "c@d.com",
		AttrEmailVerified: "True",
		AttrAccountID:     id.String(),
	}, attrMap(in.UserAttributes))

	temporary := aws.ToString(in.TemporaryPassword)
	assert.Len(t, temporary, 12)
	assert.Empty(t, accounts.NewCredentialPolicy(12).ValidatePassword(temporary))
}

func TestInviteByPhoneResend(t *testing.T) {
	client := &fakeClient{}
	dir := newTestDirectory(client)

	_, err := dir.InviteByPhone(context.Background(), uuid.New(), "+543416412222", true, "")
	require.NoError(t, err)

	in := client.adminCreate[0]
	assert.Equal(t, types.MessageActionTypeResend, in.MessageAction)
	assert.Equal(t, []types.DeliveryMediumType{types.DeliveryMediumTypeSms}, in.DesiredDeliveryMediums)

	attrs := attrMap(in.UserAttributes)
	assert.Equal(t, "True", attrs[AttrPhoneVerified])
	assert.NotContains(t, attrs, AttrEmail)
}

func TestDeleteMapsNotFound(t *testing.T) {
	client := &fakeClient{err: &types.UserNotFoundException{Message: aws.String("User does not exist.")}}
	dir := newTestDirectory(client)

	_, err := dir.Delete(context.Background(), "old@x.com")
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeExternalAccountNotFound))
	assert.Equal(t, "old@x.com", aws.ToString(client.adminDelete[0].Username))
}

func TestErrorsMapToExternalDirectory(t *testing.T) {
	client := &fakeClient{err: errors.New("InternalErrorException")}
	dir := newTestDirectory(client)

	_, err := dir.InviteByEmail(context.Background(), uuid.New(), "c@d.com", false, "")
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeExternalDirectory))
	assert.Equal(t, 502, accounts.HTTPStatus(err))

	client.err = context.DeadlineExceeded
	_, err = dir.RegisterByEmail(context.Background(), "a@b.com", "Abc12345!!", uuid.New(), "")
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeExternalDirectory))
}

func TestExists(t *testing.T) {
	client := &fakeClient{}
	dir := newTestDirectory(client)

	ok, err := dir.Exists(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok)

	client.err = &types.UserNotFoundException{}
	ok, err = dir.Exists(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, ok)

	client.err = errors.New("boom")
	_, err = dir.Exists(context.Background(), "a@b.com")
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeExternalDirectory))
}

func TestNewDefaults(t *testing.T) {
	dir := New(&fakeClient{}, Config{})
	assert.Equal(t, DefaultTimeout, dir.cfg.Timeout)

	dir = New(&fakeClient{}, Config{Timeout: time.Second})
	assert.Equal(t, time.Second, dir.cfg.Timeout)

	assert.Panics(t, func() { New(nil, Config{}) })
}
