package bus

import "fmt"

// Team joins the team-wide topic. Every agent subscribes on init.
func Team(teamID string) string { return fmt.Sprintf("team:%s", teamID) }

// Agent joins an agent's direct topic, used for targeted delivery
// (task assignment, query answers, sub-team completion notices).
func Agent(teamID, name string) string { return fmt.Sprintf("team:%s:agent:%s", teamID, name) }

// Context joins the shared-context update topic.
func Context(teamID string) string { return fmt.Sprintf("team:%s:context", teamID) }

// Tasks joins the task-lifecycle topic.
func Tasks(teamID string) string { return fmt.Sprintf("team:%s:tasks", teamID) }

// Decisions joins the decision-graph topic.
func Decisions(teamID string) string { return fmt.Sprintf("team:%s:decisions", teamID) }

// Debate joins a single debate's collection topic.
func Debate(teamID, debateID string) string { return fmt.Sprintf("team:%s:debate:%s", teamID, debateID) }

// Pair joins a single pair session's event topic.
func Pair(teamID, pairID string) string { return fmt.Sprintf("team:%s:pair:%s", teamID, pairID) }
