package pipeline

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/article-pipeline/internal/article"
)

// ErrStageViolation is wrapped by every StageError.
var ErrStageViolation = errors.New("pipeline stage violation")

// StageError reports a pipeline operation called from the wrong stage.
type StageError struct {
	Op   string
	Have article.Stage
	Want article.Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: article is %s, want %s", e.Op, e.Have, e.Want)
}

// Unwrap lets errors.Is match ErrStageViolation.
func (e *StageError) Unwrap() error {
	return ErrStageViolation
}
