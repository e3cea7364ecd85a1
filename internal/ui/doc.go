// Package ui holds the color themes shared by the line output of the cli
// package and the dashboard of the tui package.
package ui
