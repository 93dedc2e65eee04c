package textproc

// Stopwords skipped by the sparse tokenizer. English plus Portuguese; entries
// are stored accent-folded because Normalize runs before the lookup.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range stopwordList {
		stopwords[w] = struct{}{}
	}
}

func isStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

var stopwordList = []string{
	// English
	"a", "about", "after", "all", "also", "an", "and", "any", "are", "as",
	"at", "be", "because", "been", "before", "being", "between", "both",
	"but", "by", "can", "could", "did", "do", "does", "doing", "down",
	"during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "him", "his", "how", "if", "in",
	"into", "is", "it", "its", "just", "me", "more", "most", "my", "no",
	"nor", "not", "now", "of", "off", "on", "once", "only", "or", "other",
	"our", "ours", "out", "over", "own", "same", "she", "should", "so",
	"some", "such", "than", "that", "the", "their", "theirs", "them", "then",
	"there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with", "you",
	"your", "yours",
	// Portuguese (accent-folded)
	"ao", "aos", "aquela", "aquelas", "aquele", "aqueles", "aquilo", "as",
	"ate", "com", "como", "da", "das", "de", "dela", "delas", "dele",
	"deles", "depois", "do", "dos", "e", "ela", "elas", "ele", "eles", "em",
	"entre", "era", "eram", "essa", "essas", "esse", "esses", "esta",
	"estamos", "estao", "estas", "estava", "estavam", "este", "esteja",
	"estes", "estou", "eu", "foi", "fomos", "for", "foram", "fosse", "ha",
	"isso", "isto", "ja", "lhe", "lhes", "mais", "mas", "me", "mesmo",
	"meu", "meus", "minha", "minhas", "muito", "na", "nao", "nas", "nem",
	"no", "nos", "nossa", "nossas", "nosso", "nossos", "num", "numa", "o",
	"os", "ou", "para", "pela", "pelas", "pelo", "pelos", "por", "qual",
	"quando", "que", "quem", "sao", "se", "seja", "sem", "ser", "sera",
	"seria", "seu", "seus", "so", "somos", "sou", "sua", "suas", "tambem",
	"te", "tem", "temos", "tenho", "ter", "teu", "teus", "tinha", "tinham",
	"tive", "tu", "tua", "tuas", "um", "uma", "voce", "voces", "vos",
}
