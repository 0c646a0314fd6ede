package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI defines SSM operations required by SSMSource.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource resolves secret values from AWS SSM Parameter Store. Keys are
// resolved under a path prefix as SecureString parameters.
type SSMSource struct {
	client SSMAPI
	prefix string
}

// NewSSMSource creates an SSM-backed source.
func NewSSMSource(awsCfg aws.Config, prefix string) *SSMSource {
	if prefix == "" {
		prefix = DefaultSSMPrefix
	}
	return &SSMSource{
		client: ssm.NewFromConfig(awsCfg),
		prefix: prefix,
	}
}

// NewSSMSourceWithClient creates an SSM source with a custom client (for testing).
func NewSSMSourceWithClient(client SSMAPI, prefix string) *SSMSource {
	if prefix == "" {
		prefix = DefaultSSMPrefix
	}
	return &SSMSource{
		client: client,
		prefix: prefix,
	}
}

// Resolve fetches the decrypted parameter value for key.
func (s *SSMSource) Resolve(ctx context.Context, key string) (string, error) {
	output, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.parameterPath(key)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", &MissingSecretError{Key: key, Backend: BackendSSM}
		}
		return "", fmt.Errorf("failed to get secret from SSM: %w", err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter value is nil")
	}

	return *output.Parameter.Value, nil
}

// Close is a no-op for SSMSource.
func (s *SSMSource) Close() {}

// parameterPath returns the full SSM parameter path for a source key.
func (s *SSMSource) parameterPath(key string) string {
	return fmt.Sprintf("%s/%s", s.prefix, key)
}

// Ensure SSMSource implements Source.
var _ Source = (*SSMSource)(nil)
