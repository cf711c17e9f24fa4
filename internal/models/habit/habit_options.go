package habit

type HabitOption func(*Habit)

func WithName(name string) HabitOption {
	if name == "" {
		return nil
	}
	return func(h *Habit) {
		h.Name = name
	}
}

func WithDescription(description string) HabitOption {
	return func(h *Habit) {
		h.Description = description
	}
}

func WithGoalType(goalType GoalType) HabitOption {
	if goalType == "" {
		return nil
	}
	return func(h *Habit) {
		h.GoalType = goalType
	}
}

func WithGoalTarget(target int) HabitOption {
	return func(h *Habit) {
		h.GoalTarget = target
	}
}

func WithColor(color string) HabitOption {
	if color == "" {
		return nil
	}
	return func(h *Habit) {
		h.Color = color
	}
}

func WithActive(active bool) HabitOption {
	return func(h *Habit) {
		h.IsActive = active
	}
}

func Apply(h *Habit, options ...HabitOption) {
	for _, opt := range options {
		if opt != nil {
			opt(h)
		}
	}
}
