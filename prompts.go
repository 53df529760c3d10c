/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "math/rand/v2"

var defaultPrompts = []string{
	"Netflix",
	"Keyhole",
	"Sunflower",
	"Chicken",
	"Antarctica",
	"Mars",
	"Earth",
	"Alien",
	"Book",
	"Television",
	"Basketball",
	"Piano",
	"Concert",
	"Hiking",
	"Boat",
	"Frisbee",
	"The Grinch",
	"Santa Claus",
	"Michael Phelps",
	"Queen Elizabeth",
	"Usain Bolt",
	"Taylor Swift",
	"Tooth Fairy",
}

func pickPrompt(prompts []string) string {
	return prompts[rand.IntN(len(prompts))]
}
