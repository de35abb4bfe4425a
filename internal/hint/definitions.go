package hint

import "strings"

type definition struct {
	keyword string
	text    string
}

// Reihenfolge entscheidet bei mehreren Treffern
var definitions = []definition{
	{"Producers", "Producers are plants that make their own food from the sun. Think of grass or trees!"},
	{"Consumers", "Consumers are animals that need to eat other living things to survive."},
	{"Decomposers", "Decomposers break down dead things and turn them back into soil. Like mushrooms!"},
	{"Inertia", "Inertia means an object keeps doing what it's doing until something stops it."},
	{"Gravity", "Gravity is the invisible force that pulls everything down towards the Earth."},
	{"Friction", "Friction is a force that slows things down when they rub against each other."},
	{"Conduction", "Conduction is when heat moves through something solid, like a metal spoon getting hot."},
	{"Convection", "Convection is when heat moves through liquids or air, like boiling water."},
	{"Radiation", "Radiation is heat moving through empty space, like the sun warming your face."},
}

// Definition sucht das erste Stichwort, das im Thema vorkommt
func Definition(topic string) (string, bool) {
	for _, d := range definitions {
		if strings.Contains(topic, d.keyword) {
			return d.text, true
		}
	}
	return "", false
}

// Static ist die letzte Stufe: Definition oder allgemeiner Hinweis
func Static(topic string) string {
	msg := "Focus on: " + topic
	if def, ok := Definition(topic); ok {
		return msg + ". Remember: " + def
	}
	return msg + ". Use the 'Show Options' button if you are stuck!"
}
