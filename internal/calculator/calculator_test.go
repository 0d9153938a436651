package calculator

import "testing"

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		in           Input
		wantCalories int
	}{
		{
			name: "female lose weight",
			in: Input{
				Gender: GenderFemale, Age: 30, HeightCm: 165, WeightKg: 60,
				Activity: ActivityLow, Goal: GoalLose,
			},
			// BMR = 600 + 1031.25 - 150 - 161 = 1320.25; *1.2*0.85
			wantCalories: 1347,
		},
		{
			name: "male maintain",
			in: Input{
				Gender: GenderMale, Age: 25, HeightCm: 180, WeightKg: 80,
				Activity: ActivityMedium, Goal: GoalMaintain,
			},
			// BMR = 800 + 1125 - 125 + 5 = 1805; *1.55
			wantCalories: 2798,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Calculate(tt.in)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if r.Calories != tt.wantCalories {
				t.Errorf("Calories = %d, want %d", r.Calories, tt.wantCalories)
			}
			if r.Protein <= 0 || r.Fat <= 0 || r.Carbs <= 0 {
				t.Errorf("macros must be positive, got %+v", r)
			}
		})
	}
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	bad := []Input{
		{Gender: "other", Age: 30, HeightCm: 165, WeightKg: 60, Activity: ActivityLow, Goal: GoalLose},
		{Gender: GenderFemale, Age: 5, HeightCm: 165, WeightKg: 60, Activity: ActivityLow, Goal: GoalLose},
		{Gender: GenderFemale, Age: 30, HeightCm: 90, WeightKg: 60, Activity: ActivityLow, Goal: GoalLose},
		{Gender: GenderFemale, Age: 30, HeightCm: 165, WeightKg: 10, Activity: ActivityLow, Goal: GoalLose},
		{Gender: GenderFemale, Age: 30, HeightCm: 165, WeightKg: 60, Activity: "none", Goal: GoalLose},
		{Gender: GenderFemale, Age: 30, HeightCm: 165, WeightKg: 60, Activity: ActivityLow, Goal: "bulk"},
	}
	for _, in := range bad {
		if _, err := Calculate(in); err == nil {
			t.Errorf("Calculate(%+v) should error", in)
		}
	}
}
