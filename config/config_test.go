package config

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	c := map[string]string{
		"PORT":             "9000",
		"BAD_INT":          "nine",
		"ENABLED":          "true",
		"TIMEOUT":          "45s",
		"ACCEPTED_ORIGINS": "https://a.example, ,https://b.example",
		"EMPTY":            "",
	}

	assert.Equal(t, 9000, GetInt(c, "PORT", 8080))
	assert.Equal(t, 8080, GetInt(c, "BAD_INT", 8080))
	assert.Equal(t, 8080, GetInt(c, "MISSING", 8080))
	assert.True(t, GetBool(c, "ENABLED", false))
	assert.Equal(t, 45*time.Second, GetDuration(c, "TIMEOUT", time.Second))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, GetStrings(c, "ACCEPTED_ORIGINS"))
	assert.Equal(t, "fallback", GetString(c, "EMPTY", "fallback"))
	assert.Equal(t, "fallback", GetString(nil, "PORT", "fallback"))
}

func TestMerge_EnvironmentWins(t *testing.T) {
	c := Merge(map[string]string{"JWT_SECRET": "from-env"}, map[string]string{
		"JWT_SECRET": "from-ssm",
		"S3_BUCKET":  "assets",
	})

	assert.Equal(t, "from-env", c["JWT_SECRET"])
	assert.Equal(t, "assets", c["S3_BUCKET"])
}

type fakeSSM struct {
	pages []*ssm.GetParametersByPathOutput
	calls int
}

func (f *fakeSSM) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func TestLoadSSM_PaginatesAndNormalisesKeys(t *testing.T) {
	client := &fakeSSM{pages: []*ssm.GetParametersByPathOutput{
		{
			Parameters: []types.Parameter{{Name: aws.String("/cms/prod/jwt-secret"), Value: aws.String("s3cr3t")}},
			NextToken:  aws.String("next"),
		},
		{
			Parameters: []types.Parameter{{Name: aws.String("/cms/prod/db/database_url"), Value: aws.String("postgres://x")}},
		},
	}}

	values, err := LoadSSM(context.Background(), client, "/cms/prod")
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls)
	assert.Equal(t, "s3cr3t", values["JWT_SECRET"])
	assert.Equal(t, "postgres://x", values["DATABASE_URL"])
}
