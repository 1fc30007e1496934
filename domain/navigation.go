package domain

// NavigationMode selects how the router changes screens.
type NavigationMode string

const (
	NavigationPush    NavigationMode = "push"
	NavigationReplace NavigationMode = "replace"
)

// Navigator requests screen transitions. It is fire-and-forget.
type Navigator interface {
	RequestTransition(target string, mode NavigationMode)
}
