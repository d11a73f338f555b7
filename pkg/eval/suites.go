package eval

// BasicSuite covers calculation, file writing and a knowledge answer
func BasicSuite() Suite {
	return Suite{
		Name:        "basic_capabilities",
		Description: "Basic evaluation of agent capabilities",
		Tasks: []Task{
			{
				ID:          "math_simple",
				Description: "Simple math calculation",
				Goal:        "Calculate 3 * 4",
				Criteria:    `result.contains("12")`,
				MaxSteps:    3,
				Timeout:     defaultTimeout,
			},
			{
				ID:          "file_operations",
				Description: "Basic file operations",
				Goal:        "Create a file called 'test.txt' with the content 'Hello World'",
				Criteria:    `result.lowerAscii().contains("created") || result.lowerAscii().contains("written")`,
				MaxSteps:    5,
				Timeout:     defaultTimeout,
			},
			{
				ID:          "information_synthesis",
				Description: "Information synthesis and reasoning",
				Goal:        "Explain what an AI agent is and give 3 key capabilities",
				Criteria:    `size(result) > 50 && (result.lowerAscii().contains("agent") || result.lowerAscii().contains("ai"))`,
				MaxSteps:    5,
				Timeout:     defaultTimeout,
			},
		},
	}
}

// AdvancedSuite covers multi-step planning, code writing and research
func AdvancedSuite() Suite {
	return Suite{
		Name:        "advanced_capabilities",
		Description: "Advanced evaluation of complex agent capabilities",
		Tasks: []Task{
			{
				ID:          "problem_solving",
				Description: "Multi-step problem solving",
				Goal:        "You need to organize a small meeting. List the steps you would take and create a simple agenda",
				Criteria:    `["solution", "approach", "strategy", "method"].exists(k, result.lowerAscii().contains(k))`,
				MaxSteps:    8,
				Timeout:     defaultTimeout,
			},
			{
				ID:          "code_generation",
				Description: "Simple code generation",
				Goal:        "Write a Python function that calculates the factorial of a number",
				Criteria:    `["def", "function", "print"].exists(k, result.lowerAscii().contains(k))`,
				MaxSteps:    5,
				Timeout:     defaultTimeout,
			},
			{
				ID:          "research_analysis",
				Description: "Research and analysis task",
				Goal:        "Research the benefits of artificial intelligence and provide a brief analysis with pros and cons",
				Criteria:    `size(result) > 200 && ["analysis", "research", "findings", "conclusion"].exists(k, result.lowerAscii().contains(k))`,
				MaxSteps:    10,
				Timeout:     defaultTimeout,
			},
		},
	}
}

// BuiltinSuite returns a built-in suite by short name
func BuiltinSuite(name string) (Suite, bool) {
	switch name {
	case "basic", "basic_capabilities":
		return BasicSuite(), true
	case "advanced", "advanced_capabilities":
		return AdvancedSuite(), true
	default:
		return Suite{}, false
	}
}
