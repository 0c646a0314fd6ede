package classifier

import (
	"reflect"
	"testing"

	"github.com/Shavakan/secrets-fleet/pkg/github"
)

func TestClassify(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		name string
		repo string
		want []string
	}{
		{name: "aws keyword", repo: "aws-infra", want: []string{"aws"}},
		{name: "service keyword", repo: "lambda-workers", want: []string{"aws"}},
		{name: "gcp keyword", repo: "gke-manifests", want: []string{"gcp"}},
		{name: "azure keyword", repo: "azure-pipelines", want: []string{"azure"}},
		{name: "multiple providers sorted", repo: "gcp-to-aws-migrator", want: []string{"aws", "gcp"}},
		{name: "case insensitive", repo: "AWS-Tools", want: []string{"aws"}},
		{name: "no match", repo: "dotfiles", want: nil},
		{name: "substring does not match", repo: "paws-service", want: nil},
		{name: "token bounded by digits", repo: "aws2infra", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.repo)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify(%q) = %v, want %v", tt.repo, got, tt.want)
			}
		})
	}
}

func TestAnnotate(t *testing.T) {
	repos := []github.Repository{
		{Name: "aws-infra"},
		{Name: "dotfiles"},
	}

	NewKeywordClassifier().Annotate(repos)

	if !reflect.DeepEqual(repos[0].Providers, []string{"aws"}) {
		t.Errorf("repos[0].Providers = %v, want [aws]", repos[0].Providers)
	}
	if repos[1].Providers != nil {
		t.Errorf("repos[1].Providers = %v, want nil", repos[1].Providers)
	}
}
