package dialogue

const (
	loggedInIntro = "This platform is designed to help you practice for your EOG Science exams and to strengthen the connection between science and literacy skills. You can speak your answers, or use 'Show Options' to see choices. If you need help, try the 'Decompose' button. You can also skip questions. Now, please select your grade to begin!"
	welcomeFmt    = "Welcome Scientist %s. Let's get ready!"

	topicsSpeech = "Scientist, here are the topics. Pick one and let's get started!"

	standardFmt = "🎯 Standard: %s - %s"
	stuckPrompt = "It is okay if you are stuck! You can try a different question if you like."
	nudgePrompt = "Tell me more, Scientist. You can also say 'show options' to see the choices."

	optionsMessage = "Hypothesis Mode: Which one feels right?"
	optionsSpeech  = "Scientist, here are the choices. Which one calls out to you?"

	selectedFmt  = "You selected: %s"
	challengeFmt = "Interesting choice. Why do you think %s is the answer?"
	scielaPraise = "Very good job."

	scaffoldDisplay = "You are a Scientist. Let's use an abstraction strategy. Take a moment to think."
	scaffoldSpeech  = "You are a Scientist. Let's use an abstraction strategy. Focus on what is important, and ignore the rest for now. I'll be right here waiting."
	topicHintFmt    = "What is this question really asking us? It looks like it is asking us about %s."
	thinkingFmt     = "(Thinking... %s)"

	correctMessage   = "Correct! Amazing work."
	correctSpeech    = "You nailed it! That is scientifically accurate."
	incorrectMessage = "Not quite. The correct answer was %s."
	incorrectSpeech  = "Actually, the evidence points to %s. Let's learn from this."
	abortMessage     = "Let's try another question. Pick a topic when you are ready."

	decomposeDisplay = "Time to break it down! 🧩 Think about baking a cake. Sugar is needed for the cake mix (Important -> Highlight it). The Serving Plate is for AFTER the cake is baked (Not Important Now -> Ignore it). In this question, what is the 'Sugar' we need to highlight?"
	decomposeSpeech  = "Alright, Time to break it down! Think about baking a cake. Sugar is needed for the cake mix, which is important, so we need to highlight it. The Serving Plate is for AFTER the cake is baked, so it is not important right now and we can ignore it. In this question, what is the 'Sugar' we need to highlight?"
	scanningMessage  = "(Thinking... Scanning for signals...)"
	remoteHintFmt    = "Here is a hint: %s"

	warningFmt = "Attention Scientist %s. We have 5 minutes remaining in today's session. Let's make them count!"
	endFmt     = "Great work today, Scientist %s! Session complete. Logging out now..."

	noQuizMessage    = "There is no quiz assigned right now. Let's keep practicing!"
	quizIntroFmt     = "Quiz time! %s. %d questions. Let's go!"
	quizQuestionFmt  = "Question %d of %d: %s"
	quizPickMessage  = "Please pick one of the choices."
	quizCorrect      = "Correct!"
	quizIncorrectFmt = "Not quite. The answer was %s."
	quizDoneFmt      = "Quiz complete! You scored %d out of %d."
)

var (
	introTemplates = []string{
		"Okay Scientist, we're tackling %s.",
		"Alright Scientist, focusing on %s.",
	}
	hooks = []string{
		"What is your first thought?",
		"What immediately jumps out at you?",
		"What do you think?",
	}
	// Starters sind die Satzanfänge der Begründungshilfe
	Starters = []string{
		"Because it has...",
		"The evidence shows...",
		"I chose this because...",
		"It matches the definition...",
	}
)
