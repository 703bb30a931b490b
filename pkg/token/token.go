package token

type Type int

const (
	EOF Type = iota
	Illegal

	// Terminals
	Int
	Float
	Char
	ID
	TypeKw
	Semi
	Comma
	AssignOp
	Relop
	Plus
	Minus
	Star
	Div
	And
	Or
	Dot
	Not
	LP
	RP
	LB
	RB
	LC
	RC
	Struct
	Return
	If
	Else
	While

	// Non-terminals
	Program
	ExtDefList
	ExtDef
	ExtDecList
	Specifier
	StructSpecifier
	OptTag
	Tag
	VarDec
	FunDec
	VarList
	ParamDec
	CompSt
	StmtList
	Stmt
	DefList
	Def
	DecList
	Dec
	Exp
	Args
)

// Names holds the grammar spelling of every symbol, as used in tree dumps
var Names = map[Type]string{
	EOF: "EOF", Illegal: "ILLEGAL",
	Int: "INT", Float: "FLOAT", Char: "CHAR", ID: "ID", TypeKw: "TYPE",
	Semi: "SEMI", Comma: "COMMA", AssignOp: "ASSIGNOP", Relop: "RELOP",
	Plus: "PLUS", Minus: "MINUS", Star: "STAR", Div: "DIV",
	And: "AND", Or: "OR", Dot: "DOT", Not: "NOT",
	LP: "LP", RP: "RP", LB: "LB", RB: "RB", LC: "LC", RC: "RC",
	Struct: "STRUCT", Return: "RETURN", If: "IF", Else: "ELSE", While: "WHILE",

	Program: "Program", ExtDefList: "ExtDefList", ExtDef: "ExtDef", ExtDecList: "ExtDecList",
	Specifier: "Specifier", StructSpecifier: "StructSpecifier", OptTag: "OptTag", Tag: "Tag",
	VarDec: "VarDec", FunDec: "FunDec", VarList: "VarList", ParamDec: "ParamDec",
	CompSt: "CompSt", StmtList: "StmtList", Stmt: "Stmt", DefList: "DefList", Def: "Def",
	DecList: "DecList", Dec: "Dec", Exp: "Exp", Args: "Args",
}

var byName = make(map[string]Type, len(Names))

// Keywords maps reserved words to their token type. int, float and char
// all scan as TYPE.
var Keywords = map[string]Type{
	"int": TypeKw, "float": TypeKw, "char": TypeKw,
	"struct": Struct, "return": Return, "if": If, "else": Else, "while": While,
}

func init() {
	for t, name := range Names {
		byName[name] = t
	}
	// some tree producers spell the struct keyword this way
	byName["STRUCTURE"] = Struct
}

func (t Type) String() string {
	if name, ok := Names[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Lookup maps a grammar spelling back to its symbol
func Lookup(name string) (Type, bool) {
	t, ok := byName[name]
	return t, ok
}

// IsTerminal reports whether t is produced by the lexer
func (t Type) IsTerminal() bool { return t < Program }

type Token struct {
	Type   Type
	Value  string
	Line   int
	Column int
	Len    int
}
