package tasks

import (
	"fmt"

	"aptoswarm/internal/models"
)

// Expand builds one wallet's schedule from task templates. Each template yields Repeats
// sequential clones sharing its TaskID, and a clone with a reverse action is immediately
// followed by its virtual twin.
func Expand(templates []*models.Task) ([]*models.Task, error) {
	var schedule []*models.Task

	for _, t := range templates {
		repeats := t.Repeats
		if repeats < 1 {
			repeats = 1
		}

		for i := 0; i < repeats; i++ {
			clone := t.Clone()
			schedule = append(schedule, clone)

			if !t.ReverseAction {
				continue
			}
			twin, err := clone.Reverse()
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.TaskID, err)
			}
			schedule = append(schedule, twin)
		}
	}

	return schedule, nil
}
