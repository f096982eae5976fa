package settings

import "testing"

func TestKnown(t *testing.T) {
	for _, k := range []string{"storageType", "s3Bucket", "minioEndpoint", "githubAccessToken", "giteeBranch"} {
		if !Known(k) {
			t.Errorf("%s should be a known setting", k)
		}
	}
	for _, k := range []string{"", "dropboxToken", "StorageType"} {
		if Known(k) {
			t.Errorf("%s should be unknown", k)
		}
	}
}

func TestResolveLayering(t *testing.T) {
	t.Setenv("S3_REGION", "")

	// Built-in default when nothing else is set.
	if got := resolve(nil, "s3Region"); got != "us-east-1" {
		t.Errorf("default = %q, want us-east-1", got)
	}

	// Environment beats the default.
	t.Setenv("S3_REGION", "eu-west-1")
	if got := resolve(nil, "s3Region"); got != "eu-west-1" {
		t.Errorf("env = %q, want eu-west-1", got)
	}

	// Stored value beats both.
	stored := map[string]string{"s3Region": "ap-east-1"}
	if got := resolve(stored, "s3Region"); got != "ap-east-1" {
		t.Errorf("stored = %q, want ap-east-1", got)
	}

	// An empty stored value falls through to the next layer.
	stored["s3Region"] = ""
	if got := resolve(stored, "s3Region"); got != "eu-west-1" {
		t.Errorf("empty stored = %q, want env fallback", got)
	}
}

func TestDefinitionsCoverBranchDefaults(t *testing.T) {
	t.Setenv("GITHUB_BRANCH", "")
	t.Setenv("GITEE_BRANCH", "")
	if got := resolve(nil, "githubBranch"); got != "main" {
		t.Errorf("github branch default = %q, want main", got)
	}
	if got := resolve(nil, "giteeBranch"); got != "master" {
		t.Errorf("gitee branch default = %q, want master", got)
	}
}
