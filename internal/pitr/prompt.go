package pitr

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// SurveyPrompter asks the deletion confirmation on the terminal.
type SurveyPrompter struct{}

var _ Prompter = SurveyPrompter{}

func (SurveyPrompter) ConfirmDelete(name string) (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Database %s already exists on the target instance. Delete it?", name),
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}
