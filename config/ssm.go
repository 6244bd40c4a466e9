package config

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterGetter is the slice of the SSM client used by LoadSSM.
type ParameterGetter interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// LoadSSM reads every parameter below prefix (recursively, decrypted) and
// returns them keyed by the last path segment in upper case, so
// /cms/prod/jwt_secret becomes JWT_SECRET.
func LoadSSM(ctx context.Context, client ParameterGetter, prefix string) (map[string]string, error) {
	values := make(map[string]string)
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	paginator := ssm.NewGetParametersByPathPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("load ssm parameters under %s: %w", prefix, err)
		}
		for _, p := range page.Parameters {
			name := aws.ToString(p.Name)
			key := strings.ToUpper(strings.ReplaceAll(path.Base(name), "-", "_"))
			values[key] = aws.ToString(p.Value)
		}
	}

	return values, nil
}
