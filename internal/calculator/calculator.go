// Package calculator computes daily calorie and macro targets and stores the
// per-user results. The bot walks the user through the inputs; the math here
// is Mifflin-St Jeor with a goal adjustment.
package calculator

import (
	"fmt"
	"math"
)

// Gender of the user, as asked by the questionnaire.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Activity level multipliers over the basal rate.
type Activity string

const (
	ActivityLow    Activity = "low"    // sedentary
	ActivityMedium Activity = "medium" // training 3-5 times a week
	ActivityHigh   Activity = "high"   // daily training or physical work
)

func (a Activity) factor() float64 {
	switch a {
	case ActivityLow:
		return 1.2
	case ActivityMedium:
		return 1.55
	case ActivityHigh:
		return 1.725
	}
	return 0
}

// Goal adjusts the maintenance calories.
type Goal string

const (
	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"
)

func (g Goal) adjustment() float64 {
	switch g {
	case GoalLose:
		return 0.85
	case GoalMaintain:
		return 1.0
	case GoalGain:
		return 1.15
	}
	return 0
}

// Input is one completed questionnaire.
type Input struct {
	Gender   Gender
	Age      int
	HeightCm float64
	WeightKg float64
	Activity Activity
	Goal     Goal
}

// Validate checks the questionnaire for plausible values.
func (in Input) Validate() error {
	if in.Gender != GenderFemale && in.Gender != GenderMale {
		return fmt.Errorf("unknown gender %q", in.Gender)
	}
	if in.Age < 10 || in.Age > 100 {
		return fmt.Errorf("age %d out of range", in.Age)
	}
	if in.HeightCm < 100 || in.HeightCm > 250 {
		return fmt.Errorf("height %.0f out of range", in.HeightCm)
	}
	if in.WeightKg < 30 || in.WeightKg > 300 {
		return fmt.Errorf("weight %.0f out of range", in.WeightKg)
	}
	if in.Activity.factor() == 0 {
		return fmt.Errorf("unknown activity %q", in.Activity)
	}
	if in.Goal.adjustment() == 0 {
		return fmt.Errorf("unknown goal %q", in.Goal)
	}
	return nil
}

// Result is the computed daily targets.
type Result struct {
	Calories int
	Protein  int // grams
	Fat      int // grams
	Carbs    int // grams
}

// Calculate derives the daily targets from the questionnaire.
// BMR is Mifflin-St Jeor; macros split 30/30/40 protein/fat/carbs by calories.
func Calculate(in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	bmr := 10*in.WeightKg + 6.25*in.HeightCm - 5*float64(in.Age)
	if in.Gender == GenderMale {
		bmr += 5
	} else {
		bmr -= 161
	}

	calories := bmr * in.Activity.factor() * in.Goal.adjustment()
	return Result{
		Calories: int(math.Round(calories)),
		Protein:  int(math.Round(calories * 0.30 / 4)),
		Fat:      int(math.Round(calories * 0.30 / 9)),
		Carbs:    int(math.Round(calories * 0.40 / 4)),
	}, nil
}

// Format renders the result for the chat.
func (r Result) Format() string {
	return fmt.Sprintf(
		"🧮 <b>Твоя дневная норма</b>\n\n"+
			"Калории: <b>%d ккал</b>\n"+
			"Белки: %d г\nЖиры: %d г\nУглеводы: %d г\n\n"+
			"Под эту норму у нас есть готовые рационы, жми /start!",
		r.Calories, r.Protein, r.Fat, r.Carbs)
}
