package tracking

import (
	git "github.com/go-git/go-git/v5"
)

// Reserved MLflow tag names describing where a run came from.
const (
	sourceNameTag   = "mlflow.source.name"
	sourceCommitTag = "mlflow.source.git.commit"
)

// GitCommit returns the HEAD commit hash of the repository containing dir.
// It reports false when dir is not inside a repository or the repository
// has no commits yet.
func GitCommit(dir string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	return head.Hash().String(), true
}

// BaseTags builds the tags attached to every top-level run: the flow name
// as the run source and, when the working tree is a git checkout, the HEAD
// commit it ran from.
func BaseTags(flow, dir string) map[string]string {
	tags := map[string]string{sourceNameTag: flow}
	if commit, ok := GitCommit(dir); ok {
		tags[sourceCommitTag] = commit
	}
	return tags
}
