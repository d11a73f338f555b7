// Package planner decides the next agent action.
//
// LLMPlanner offers the tool catalog to a chat model as functions and maps
// the first function call back onto an action. Selector routes deepseek
// goals between a chat model and a reasoning model using Score.
// ScriptedPlanner replays fixed actions for tests and offline runs.
package planner
