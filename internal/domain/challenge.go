package domain

import "time"

// QuestionKind describes how a question is presented.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindShortAnswer    QuestionKind = "short-answer"
	KindCalculation    QuestionKind = "calculation"
)

// Difficulty is the tier of a boss challenge.
type Difficulty string

const (
	DifficultyApprentice Difficulty = "apprentice"
	DifficultyExpert     Difficulty = "expert"
	DifficultyMaster     Difficulty = "master"
	DifficultyLegendary  Difficulty = "legendary"
)

// Question is a single prompt inside a phase.
type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required"`
	Prompt        string       `json:"question" yaml:"question" validate:"required"`
	Kind          QuestionKind `json:"type" yaml:"type" validate:"required,oneof=multiple-choice short-answer calculation"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty" validate:"omitempty,dive,required"`
	CorrectAnswer string       `json:"correctAnswer" yaml:"correctAnswer" validate:"required"`
	Explanation   string       `json:"explanation" yaml:"explanation"`
	Points        int          `json:"points" yaml:"points" validate:"gt=0"`
}

// Phase is an ordered group of questions.
type Phase struct {
	ID          string     `json:"id" yaml:"id" validate:"required"`
	Name        string     `json:"name" yaml:"name" validate:"required"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	TimeMinutes int        `json:"timeEstimate,omitempty" yaml:"timeEstimate,omitempty" validate:"gte=0"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
	Completed   bool       `json:"completed" yaml:"completed"`
}

// MaxScore returns the points available in the phase.
func (p Phase) MaxScore() int {
	total := 0
	for _, q := range p.Questions {
		total += q.Points
	}
	return total
}

// Reward is a cosmetic unlocked by defeating a challenge.
type Reward struct {
	Type        string `json:"type" yaml:"type" validate:"required,oneof=badge avatar title cosmetic"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Rarity      string `json:"rarity,omitempty" yaml:"rarity,omitempty" validate:"omitempty,oneof=rare epic legendary"`
}

// Challenge is a boss problem made of ordered phases.
type Challenge struct {
	ID              string     `json:"id" yaml:"id" validate:"required"`
	Name            string     `json:"name" yaml:"name" validate:"required"`
	Subject         string     `json:"subject" yaml:"subject" validate:"required"`
	Difficulty      Difficulty `json:"difficulty" yaml:"difficulty" validate:"required,oneof=apprentice expert master legendary"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	LongDescription string     `json:"longDescription,omitempty" yaml:"longDescription,omitempty"`
	Phases          []Phase    `json:"phases" yaml:"phases" validate:"required,min=1,dive"`
	XPReward        int        `json:"xpReward" yaml:"xpReward" validate:"gte=0"`
	Unlocked        bool       `json:"unlocked" yaml:"unlocked"`
	Completed       bool       `json:"completed" yaml:"completed"`
	TotalMinutes    int        `json:"totalTime,omitempty" yaml:"totalTime,omitempty"`
	Prerequisite    string     `json:"prerequisite,omitempty" yaml:"prerequisite,omitempty"`
	Rewards         []Reward   `json:"rewards,omitempty" yaml:"rewards,omitempty" validate:"dive"`
}

// MaxScore returns the points available across all phases.
func (c Challenge) MaxScore() int {
	total := 0
	for _, p := range c.Phases {
		total += p.MaxScore()
	}
	return total
}

// QuestionCount returns the number of questions across all phases.
func (c Challenge) QuestionCount() int {
	n := 0
	for _, p := range c.Phases {
		n += len(p.Questions)
	}
	return n
}

// ChallengeCompletion records a defeated challenge.
type ChallengeCompletion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ChallengeID string    `json:"challengeId"`
	TotalScore  int       `json:"totalScore"`
	MaxScore    int       `json:"maxScore"`
	CompletedAt time.Time `json:"completedAt"`
}
