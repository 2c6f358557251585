package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	out   *ssm.GetParameterOutput
	err   error
	input *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.input = in
	return f.out, f.err
}

func withValue(v string) *fakeAPI {
	return &fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/demo/elevenlabs"),
		Value: aws.String(v),
		Type:  types.ParameterTypeSecureString,
	}}}
}

func TestGetParameterDecryptsAndTrims(t *testing.T) {
	api := withValue(" sk-live \n")
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /demo/elevenlabs ")
	require.NoError(t, err)
	assert.Equal(t, "sk-live", v)
	require.NotNil(t, api.input)
	assert.Equal(t, "/demo/elevenlabs", aws.ToString(api.input.Name))
	assert.True(t, aws.ToBool(api.input.WithDecryption))
}

func TestGetParameterMissingValue(t *testing.T) {
	client, err := New(&fakeAPI{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestGetParameterAPIError(t *testing.T) {
	client, err := New(&fakeAPI{err: errors.New("access denied")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "access denied")
}

func TestGetParameterValidation(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")

	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolveCredential(t *testing.T) {
	ctx := context.Background()
	store, err := New(withValue("from-ssm"))
	require.NoError(t, err)

	key, err := ResolveCredential(ctx, " from-env ", "/demo/elevenlabs", store)
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	key, err = ResolveCredential(ctx, "", "/demo/elevenlabs", store)
	require.NoError(t, err)
	assert.Equal(t, "from-ssm", key)

	key, err = ResolveCredential(ctx, "", "", store)
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = ResolveCredential(ctx, "", "/demo/elevenlabs", nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	broken, err := New(&fakeAPI{err: errors.New("throttled")})
	require.NoError(t, err)
	_, err = ResolveCredential(ctx, "", "/demo/elevenlabs", broken)
	require.Error(t, err)
}
